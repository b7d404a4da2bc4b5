package devserver

import (
	"context"
	"fmt"
	"time"
)

// Seed fills an empty database with a week of group-class slots so the
// client has something to browse on first run. No-op when slots exist.
func Seed(ctx context.Context, repo *SlotRepository) error {
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	services := []int64{1, 2, 3}
	times := [][2]string{
		{"09:00", "10:00"},
		{"10:00", "11:00"},
		{"18:00", "19:00"},
	}

	start := time.Now()
	for day := 0; day < 7; day++ {
		d := start.AddDate(0, 0, day)
		date := d.Format("2006-01-02")
		label := d.Weekday().String()
		for _, svc := range services {
			for _, tr := range times {
				err := repo.Insert(ctx, Slot{
					ServiceID: svc,
					Date:      date,
					FromTime:  tr[0],
					ToTime:    tr[1],
					DayLabel:  label,
				})
				if err != nil {
					return fmt.Errorf("seeding slots: %w", err)
				}
			}
		}
	}
	return nil
}
