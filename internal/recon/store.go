package recon

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Entry records a charge whose booking row could not be written: the
// buyer's money moved but the database has no booking. Finance works
// these entries manually (refund or re-create).
type Entry struct {
	ID          int64     `json:"id"`
	ImpUID      string    `json:"imp_uid"`
	MerchantUID string    `json:"merchant_uid"`
	Payload     string    `json:"payload"`
	Amount      int64     `json:"amount"`
	BuyerEmail  string    `json:"buyer_email"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStoreWithDB creates the reconciliation store on an existing
// database connection and ensures its table exists.
func NewStoreWithDB(db *sql.DB, log *logger.Logger) (*Store, error) {
	log.Info("DATABASE", "Creating reconciliation storage with existing database connection")

	store := &Store{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize reconciliation tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize reconciliation tables: %w", err)
	}

	log.Info("DATABASE", "Reconciliation storage initialized successfully")
	return store, nil
}

func (s *Store) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payment_reconciliation table if not exists")

	query := `
    CREATE TABLE IF NOT EXISTS payment_reconciliation (
        id BIGSERIAL PRIMARY KEY,
        imp_uid VARCHAR(100) NOT NULL,
        merchant_uid VARCHAR(100) NOT NULL,
        payload TEXT NOT NULL,
        amount BIGINT NOT NULL,
        buyer_email VARCHAR(255) NOT NULL,
        reason TEXT NOT NULL,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create payment_reconciliation table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_recon_merchant_uid ON payment_reconciliation(merchant_uid);",
		"CREATE INDEX IF NOT EXISTS idx_recon_created_at ON payment_reconciliation(created_at);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "postgresql", "Reconciliation table and indexes ready")
	return nil
}

// RecordOrphanedCharge writes the reconciliation entry for a booking
// whose charge succeeded but whose row could not be inserted. An error
// here means the charge is tracked nowhere but the gateway; the caller
// must log it as loudly as possible.
func (s *Store) RecordOrphanedCharge(impUID, merchantUID, reason string, booking models.Booking) (*Entry, error) {
	s.log.LogDatabase("INSERT", "postgresql", fmt.Sprintf("Recording orphaned charge %s", merchantUID))

	payload, err := json.Marshal(booking)
	if err != nil {
		payload = []byte("{}")
	}

	entry := &Entry{
		ImpUID:      impUID,
		MerchantUID: merchantUID,
		Payload:     string(payload),
		Amount:      booking.TotalPrice,
		BuyerEmail:  booking.BuyerEmail,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
    INSERT INTO payment_reconciliation (
        imp_uid, merchant_uid, payload, amount, buyer_email, reason, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING id
    `

	err = s.db.QueryRow(query,
		entry.ImpUID, entry.MerchantUID, entry.Payload, entry.Amount, entry.BuyerEmail, entry.Reason, entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to record orphaned charge %s: %s", merchantUID, err.Error()))
		return nil, fmt.Errorf("failed to record orphaned charge: %w", err)
	}

	s.log.LogDatabase("SUCCESS", "postgresql", fmt.Sprintf("Orphaned charge %s recorded (id=%d)", merchantUID, entry.ID))
	return entry, nil
}

// ListEntries returns the most recent reconciliation entries for the
// finance review endpoint.
func (s *Store) ListEntries(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
    SELECT id, imp_uid, merchant_uid, payload, amount, buyer_email, reason, created_at
    FROM payment_reconciliation
    ORDER BY created_at DESC
    LIMIT $1
    `

	rows, err := s.db.Query(query, limit)
	if err != nil {
		s.log.Error("DATABASE", "Failed to list reconciliation entries: "+err.Error())
		return nil, fmt.Errorf("failed to list reconciliation entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ImpUID, &e.MerchantUID, &e.Payload, &e.Amount, &e.BuyerEmail, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
