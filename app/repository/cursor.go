package repository

import (
	"context"

	"github.com/ManuelReschke/SchoolPay/app/models"
)

// PageFunc loads up to limit payments with id > afterID, ordered by id.
type PageFunc func(ctx context.Context, afterID uint, limit int) ([]models.Payment, error)

// PaymentCursor is a lazy, forward-only sequence of payments. It cannot be
// rewound; to resume, open a new cursor from a saved Position.
type PaymentCursor interface {
	Next(ctx context.Context) bool
	Payment() *models.Payment
	Err() error
	// Position is the id of the last payment returned by Next.
	Position() uint
}

// KeysetCursor pages through rows by primary key so only one batch is held in
// memory at a time.
type KeysetCursor struct {
	fetch   PageFunc
	batch   int
	afterID uint
	buf     []models.Payment
	idx     int
	current *models.Payment
	done    bool
	err     error
}

// NewKeysetCursor starts after startAfterID (0 for the beginning).
func NewKeysetCursor(fetch PageFunc, startAfterID uint, batchSize int) *KeysetCursor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &KeysetCursor{fetch: fetch, batch: batchSize, afterID: startAfterID}
}

func (c *KeysetCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.idx >= len(c.buf) {
		if c.done {
			c.current = nil
			return false
		}
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}
		page, err := c.fetch(ctx, c.afterID, c.batch)
		if err != nil {
			c.err = err
			return false
		}
		c.buf, c.idx = page, 0
		if len(page) < c.batch {
			c.done = true
		}
		if len(page) == 0 {
			c.current = nil
			return false
		}
	}
	c.current = &c.buf[c.idx]
	c.idx++
	c.afterID = c.current.ID
	return true
}

func (c *KeysetCursor) Payment() *models.Payment { return c.current }
func (c *KeysetCursor) Err() error               { return c.err }
func (c *KeysetCursor) Position() uint           { return c.afterID }
