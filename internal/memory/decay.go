package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Decay constants. A low-importance record older than the sweep
// threshold fades linearly and is archived once its decay factor drops
// below decayFloor. Reinforcement buys back a bounded number of days.
const (
	decayImportanceCutoff = 0.4
	decayWindowDays       = 90.0
	decayFloor            = 0.1
	reinforceDaysPerUnit  = 10.0
	reinforceMaxBonusDays = 30.0
)

// SweepOptions tune a decay sweep.
type SweepOptions struct {
	ThresholdDays int       // records younger than this are untouched; 0 means 30
	Now           time.Time // zero means time.Now()
}

// Sweep applies time-based decay to the live store. Records older than
// the threshold with importance below the cutoff get a shrinking decay
// factor; once it falls under the floor the record moves to the
// archive. Reinforcement events extend a record's grace period by
// reinforceDaysPerUnit days per unit of accumulated effectiveness,
// capped at reinforceMaxBonusDays.
func (s *Store) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	threshold := opts.ThresholdDays
	if threshold <= 0 {
		threshold = 30
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.created_at, c.user_id, c.user_message, c.importance,
		       COALESCE((SELECT SUM(r.effectiveness) FROM reinforcements r WHERE r.memory_id = c.id), 0)
		FROM conversations c`)
	if err != nil {
		return nil, fmt.Errorf("load conversations for sweep: %w", err)
	}

	type candidate struct {
		id      string
		userID  string
		summary string
		factor  float64
		archive bool
	}
	var candidates []candidate
	result := &SweepResult{}

	for rows.Next() {
		var id, created, userID, message string
		var importance, reinforced float64
		if err := rows.Scan(&id, &created, &userID, &message, &importance, &reinforced); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sweep row: %w", err)
		}
		createdAt, err := time.Parse(timeFormat, created)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: created_at %q", ErrCorruptRecord, created)
		}

		ageDays := now.Sub(createdAt).Hours() / 24
		if ageDays <= float64(threshold) || importance >= decayImportanceCutoff {
			result.Kept++
			continue
		}

		bonus := reinforced * reinforceDaysPerUnit
		if bonus > reinforceMaxBonusDays {
			bonus = reinforceMaxBonusDays
		}
		factor := 1 - (ageDays-float64(threshold)-bonus)/decayWindowDays
		factor = clamp01(factor)

		c := candidate{id: id, userID: userID, summary: summarize(message, 100), factor: factor}
		if factor < decayFloor {
			c.archive = true
			result.Archived++
		} else {
			result.Kept++
		}
		result.Decayed++
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sweep rows: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sweep tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range candidates {
		if c.archive {
			if _, err := tx.Exec(`
				INSERT INTO decay_archive (id, source_id, user_id, summary, reason, created_at, archived_at)
				SELECT ?, id, user_id, ?, 'low_importance_timeout', created_at, ?
				FROM conversations WHERE id = ?`,
				uuid.New().String(), c.summary, now.Format(timeFormat), c.id); err != nil {
				return nil, fmt.Errorf("archive record %s: %w", c.id, err)
			}
			if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, c.id); err != nil {
				return nil, fmt.Errorf("drop decayed record %s: %w", c.id, err)
			}
			continue
		}
		if _, err := tx.Exec(`UPDATE conversations SET decay_factor = ? WHERE id = ?`, c.factor, c.id); err != nil {
			return nil, fmt.Errorf("update decay factor %s: %w", c.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sweep: %w", err)
	}

	s.logger.Info("decay sweep complete",
		zap.Int("decayed", result.Decayed),
		zap.Int("kept", result.Kept),
		zap.Int("archived", result.Archived))
	return result, nil
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
// Sweep failures are logged and the next cycle proceeds.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration, thresholdDays int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx, SweepOptions{ThresholdDays: thresholdDays}); err != nil {
					s.logger.Warn("scheduled decay sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Archive returns archived records, newest first.
func (s *Store) Archive(limit int) ([]*ArchivedRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, source_id, user_id, summary, reason, created_at, archived_at
		FROM decay_archive ORDER BY archived_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedRecord
	for rows.Next() {
		var ar ArchivedRecord
		var created, archived string
		if err := rows.Scan(&ar.ID, &ar.SourceID, &ar.UserID, &ar.Summary,
			&ar.Reason, &created, &archived); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		if t, err := time.Parse(timeFormat, created); err == nil {
			ar.CreatedAt = t
		}
		if t, err := time.Parse(timeFormat, archived); err == nil {
			ar.ArchivedAt = t
		}
		out = append(out, &ar)
	}
	return out, rows.Err()
}
