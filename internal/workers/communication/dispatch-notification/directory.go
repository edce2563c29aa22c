// internal/workers/communication/dispatch-notification/directory.go
package dispatchnotification

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"fleet-compliance/internal/models"

	"github.com/lib/pq"
)

// RecipientDirectory resolves recipient roles of an entity to contacts.
type RecipientDirectory interface {
	Resolve(ctx context.Context, entityID string, roles []models.RecipientRole) ([]models.Contact, error)
}

// InAppStore persists in-app notifications for a contact.
type InAppStore interface {
	Insert(ctx context.Context, id string, to models.Contact, n models.Notification, subject, body string) error
}

type PostgresRecipientDirectory struct {
	db *sql.DB
}

func NewPostgresRecipientDirectory(db *sql.DB) *PostgresRecipientDirectory {
	return &PostgresRecipientDirectory{db: db}
}

func (d *PostgresRecipientDirectory) Resolve(ctx context.Context, entityID string, roles []models.RecipientRole) ([]models.Contact, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT contact_id, role, name, email, phone FROM recipients
		 WHERE entity_id = $1 AND role = ANY($2) ORDER BY role, contact_id`,
		entityID, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var role string
		if err := rows.Scan(&c.ID, &role, &c.Name, &c.Email, &c.Phone); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		c.Role = models.RecipientRole(role)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

type PostgresInAppStore struct {
	db *sql.DB
}

func NewPostgresInAppStore(db *sql.DB) *PostgresInAppStore {
	return &PostgresInAppStore{db: db}
}

func (s *PostgresInAppStore) Insert(ctx context.Context, id string, to models.Contact, n models.Notification, subject, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO in_app_notifications (id, recipient_id, entity_id, type, subject, body)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, to.ID, n.EntityID, n.Type, subject, body)
	if err != nil {
		return fmt.Errorf("insert in-app notification: %w", err)
	}
	return nil
}

// MemoryDirectory is an in-process RecipientDirectory and InAppStore.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[string][]models.Contact
	inbox    map[string][]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		contacts: make(map[string][]models.Contact),
		inbox:    make(map[string][]string),
	}
}

func (d *MemoryDirectory) Add(entityID string, c models.Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contacts[entityID] = append(d.contacts[entityID], c)
}

func (d *MemoryDirectory) Resolve(_ context.Context, entityID string, roles []models.RecipientRole) ([]models.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.Contact
	for _, c := range d.contacts[entityID] {
		for _, r := range roles {
			if c.Role == r {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (d *MemoryDirectory) Insert(_ context.Context, _ string, to models.Contact, _ models.Notification, _, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inbox[to.ID] = append(d.inbox[to.ID], body)
	return nil
}

// Inbox returns the in-app bodies delivered to contactID.
func (d *MemoryDirectory) Inbox(contactID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.inbox[contactID]...)
}
