package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	DefaultTTL     = 24 * time.Hour
	maxKeyLength   = 255
)

// Config configures New.
type Config struct {
	Store Store
	TTL   time.Duration
	// Scope namespaces keys, e.g. per caller. Defaults to the X-User-ID header.
	Scope func(c *fiber.Ctx) string
}

// New returns a middleware that requires an Idempotency-Key header, replays
// the stored response for a repeated key and rejects a key reused with a
// different body. Failed requests (handler error or 5xx) release the key.
func New(cfg Config) fiber.Handler {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Scope == nil {
		cfg.Scope = func(c *fiber.Ctx) string { return c.Get("X-User-ID") }
	}

	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(HeaderKey))
		if key == "" || len(key) > maxKeyLength {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key header is required")
		}
		storeKey := c.Method() + ":" + c.Path() + ":" + cfg.Scope(c) + ":" + key
		sum := sha256.Sum256(c.Body())
		fingerprint := hex.EncodeToString(sum[:])

		ctx := c.UserContext()
		existing, started, err := cfg.Store.Begin(ctx, storeKey, fingerprint, cfg.TTL)
		if err != nil {
			log.Errorf("[Idempotency] Store unavailable for %s: %v", storeKey, err)
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !started {
			switch {
			case existing.Fingerprint != fingerprint:
				return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request body")
			case existing.Pending:
				return fiber.NewError(fiber.StatusConflict, "a request with this Idempotency-Key is still in progress")
			}
			c.Set(HeaderReplayed, "true")
			if existing.ContentType != "" {
				c.Set(fiber.HeaderContentType, existing.ContentType)
			}
			return c.Status(existing.Status).Send(existing.Body)
		}

		if err := c.Next(); err != nil {
			abort(cfg.Store, storeKey)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			abort(cfg.Store, storeKey)
			return nil
		}
		rec := Record{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := cfg.Store.Complete(ctx, storeKey, rec, cfg.TTL); err != nil {
			log.Warnf("[Idempotency] Could not store response for %s: %v", storeKey, err)
		}
		return nil
	}
}

func abort(store Store, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Abort(ctx, key); err != nil {
		log.Warnf("[Idempotency] Could not release %s: %v", key, err)
	}
}
