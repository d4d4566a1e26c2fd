package settings

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultRefreshInterval = 30 * time.Second

// StartRefresher reloads the snapshot every interval until ctx is done so
// changes saved by another instance become visible here.
func StartRefresher(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if db == nil {
		return
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if errRefresh := RefreshDBConfigSnapshot(ctx, db); errRefresh != nil && ctx.Err() == nil {
					log.WithError(errRefresh).Warn("settings: refresh snapshot failed")
				}
			}
		}
	}()
}
