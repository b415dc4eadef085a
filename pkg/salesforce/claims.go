package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ClaimedContact is a CRM contact another rep has logged activity against.
type ClaimedContact struct {
	ID           string `json:"Id" salesforce:"Id"`
	Email        string `json:"Email" salesforce:"Email"`
	OwnerID      string `json:"OwnerId" salesforce:"OwnerId"`
	LastActivity string `json:"LastActivityDate" salesforce:"LastActivityDate"`
}

// ClaimedContactsSince returns contacts with rep activity logged on or after
// the watermark date. The caller maps emails back to attendees.
func ClaimedContactsSince(ctx context.Context, c Client, since time.Time) ([]ClaimedContact, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Email, OwnerId, LastActivityDate FROM Contact WHERE LastActivityDate >= %s AND Email != null",
		since.Format("2006-01-02"),
	)

	var contacts []ClaimedContact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, eris.Wrap(err, "sf: claimed contacts")
	}
	return contacts, nil
}

// FindContactByEmail returns the contact for an email address, or nil.
func FindContactByEmail(ctx context.Context, c Client, email string) (*ClaimedContact, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Email, OwnerId, LastActivityDate FROM Contact WHERE Email = '%s' LIMIT 1",
		escapeSoql(email),
	)

	var contacts []ClaimedContact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find contact %s", email))
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return &contacts[0], nil
}

// MarkContacted stamps a contact with the wave that reached out to them so
// reps see the touch in the CRM.
func MarkContacted(ctx context.Context, c Client, contactID, wave string) error {
	if contactID == "" {
		return eris.New("sf: contact id is required")
	}
	if err := c.UpdateOne(ctx, "Contact", contactID, map[string]any{
		"Description": fmt.Sprintf("Conference outreach sent (wave %s)", wave),
	}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: mark contacted %s", contactID))
	}
	return nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
