package jobs

import (
	"context"
	"log"
	"time"

	"workhub/database"
	"workhub/services"
)

const presenceStaleAfter = 10 * time.Minute

// SweepStalePresence degrades presence rows that stopped updating to
// offline. Clients that disconnect cleanly are marked offline by the hub;
// this catches the ones that just vanished.
func SweepStalePresence() {
	log.Println("Running job: SweepStalePresence...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	swept, err := services.MarkStalePresenceOffline(ctx, database.DB, presenceStaleAfter)
	if err != nil {
		log.Printf("Error sweeping stale presence: %v", err)
		return
	}

	if swept == 0 {
		log.Println("No stale presence rows found.")
		return
	}
	log.Printf("Marked %d stale presence row(s) offline.", swept)
}
