package signals

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/salesforce"
)

// ClaimPuller polls the CRM for contacts reps have logged activity against
// and records claimed_elsewhere signals for matching attendees.
type ClaimPuller struct {
	sf      salesforce.Client
	store   store.Store
	applier Applier
}

func NewClaimPuller(sf salesforce.Client, s store.Store, applier Applier) *ClaimPuller {
	return &ClaimPuller{sf: sf, store: s, applier: applier}
}

// Pull fetches claims since the watermark and applies them to the given
// wave. Contacts with no matching attendee email are skipped. Returns the
// number of signals applied.
func (p *ClaimPuller) Pull(ctx context.Context, wave string, since time.Time) (int, error) {
	claimed, err := salesforce.ClaimedContactsSince(ctx, p.sf, since)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	attendees, err := p.store.ListAttendees(ctx)
	if err != nil {
		return 0, err
	}
	byEmail := make(map[string]string, len(attendees))
	for _, a := range attendees {
		if a.Email != "" {
			byEmail[strings.ToLower(a.Email)] = a.ID
		}
	}

	applied := 0
	for _, contact := range claimed {
		attendeeID, ok := byEmail[strings.ToLower(contact.Email)]
		if !ok {
			continue
		}
		at := time.Now().UTC()
		if d, err := time.Parse("2006-01-02", contact.LastActivity); err == nil {
			at = d
		}
		if err := p.applier.ApplySignal(ctx, attendeeID, wave, model.SignalClaimed, at); err != nil {
			return applied, eris.Wrapf(err, "signals: apply claim for %s", attendeeID)
		}
		applied++
		zap.L().Info("signals: claim recorded",
			zap.String("attendee", attendeeID), zap.String("owner", contact.OwnerID))
	}
	return applied, nil
}

// ContactStamper writes the outreach touch back to the CRM after a send so
// reps browsing Salesforce see which contacts a wave reached.
type ContactStamper struct {
	sf    salesforce.Client
	store store.Store
}

func NewContactStamper(sf salesforce.Client, s store.Store) *ContactStamper {
	return &ContactStamper{sf: sf, store: s}
}

// Stamp marks every delivered attempt of a wave on its CRM contact.
// Attendees with no CRM contact are skipped. Returns the number stamped.
func (cs *ContactStamper) Stamp(ctx context.Context, wave string) (int, error) {
	attempts, err := cs.store.ListAttempts(ctx, store.AttemptFilter{Wave: wave, Limit: 10000})
	if err != nil {
		return 0, err
	}

	stamped := 0
	var errs []error
	for _, att := range attempts {
		if !att.State.Delivered() {
			continue
		}
		attendee, err := cs.store.GetAttendee(ctx, att.AttendeeID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		contact, err := salesforce.FindContactByEmail(ctx, cs.sf, attendee.Email)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if contact == nil {
			zap.L().Debug("signals: no CRM contact for attendee",
				zap.String("attendee", attendee.ID), zap.String("email", attendee.Email))
			continue
		}
		if err := salesforce.MarkContacted(ctx, cs.sf, contact.ID, wave); err != nil {
			errs = append(errs, err)
			continue
		}
		stamped++
	}
	return stamped, errors.Join(errs...)
}
