package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/brightpost/campaign-engine/internal/engine"
	"github.com/brightpost/campaign-engine/internal/model"
)

type ContactRepository struct {
	DB *sql.DB
}

var _ engine.ContactStore = (*ContactRepository)(nil)

const contactColumns = `c.id, c.email, c.first_name, c.last_name, c.custom_fields`

// ListRecipients streams the contacts targeted by a campaign. The iterator
// holds the underlying rows; callers must Close it.
func (r *ContactRepository) ListRecipients(ctx context.Context, campaignID int) (engine.RecipientIterator, error) {
	query := `
        SELECT ` + contactColumns + `
        FROM contacts c
        JOIN campaign_recipients cr ON cr.contact_id = c.id
        WHERE cr.campaign_id = $1
        ORDER BY c.id
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "list recipients")
	}
	return &recipientRows{rows: rows}, nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts c WHERE c.id = $1`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, errors.Wrap(err, "get contact")
	}
	return c, nil
}

type recipientRows struct {
	rows    *sql.Rows
	current *model.Contact
	err     error
}

func (it *recipientRows) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	c, err := scanContact(it.rows)
	if err != nil {
		it.err = err
		return false
	}
	it.current = c
	return true
}

func (it *recipientRows) Contact() *model.Contact { return it.current }

func (it *recipientRows) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *recipientRows) Close() error { return it.rows.Close() }

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	var fields []byte
	if err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &fields); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &c.CustomFields); err != nil {
			return nil, errors.Wrap(err, "decode custom fields")
		}
	}
	return &c, nil
}
