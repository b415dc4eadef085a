// Package review mirrors attempts needing a human decision onto the team's
// Notion board: failed generations and ambiguous-role exhibitor contacts.
package review

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// Config configures the review board mirror.
type Config struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// Mirror pushes pending-review attempts to a Notion database, one page per
// attempt, keyed by attempt id so re-runs never duplicate pages.
type Mirror struct {
	notion notion.Client
	store  store.Store
	dbID   string
}

func NewMirror(n notion.Client, s store.Store, databaseID string) *Mirror {
	return &Mirror{notion: n, store: s, dbID: databaseID}
}

// Sync mirrors every pending-review attempt in a wave. Returns the number
// of pages created.
func (m *Mirror) Sync(ctx context.Context, wave string) (int, error) {
	attempts, err := m.store.PendingReview(ctx, wave)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, att := range attempts {
		pageID, err := m.findPage(ctx, att.ID)
		if err != nil {
			return created, err
		}
		if pageID != "" {
			if err := m.refreshPage(ctx, pageID, att); err != nil {
				return created, err
			}
			continue
		}
		if err := m.createPage(ctx, att); err != nil {
			return created, err
		}
		created++
	}
	zap.L().Info("review: board synced",
		zap.String("wave", wave), zap.Int("pending", len(attempts)), zap.Int("created", created))
	return created, nil
}

func (m *Mirror) findPage(ctx context.Context, attemptID string) (string, error) {
	resp, err := m.notion.QueryDatabase(ctx, m.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Attempt ID",
			RichText: &notionapi.TextFilterCondition{Equals: attemptID},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// refreshPage keeps reason and error current on re-syncs; a failed attempt
// that picked up a new send error should show it.
func (m *Mirror) refreshPage(ctx context.Context, pageID string, att model.OutreachAttempt) error {
	props := notionapi.Properties{
		"Reason": notionapi.SelectProperty{
			Select: notionapi.Option{Name: reviewReason(att)},
		},
	}
	if att.SendError != "" {
		props["Error"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: truncate(att.SendError, 2000)}}},
		}
	}
	_, err := m.notion.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props})
	return eris.Wrapf(err, "review: refresh page for attempt %s", att.ID)
}

func (m *Mirror) createPage(ctx context.Context, att model.OutreachAttempt) error {
	attendee, err := m.store.GetAttendee(ctx, att.AttendeeID)
	if err != nil {
		return err
	}
	company, err := m.store.GetCompany(ctx, att.CompanyID)
	if err != nil {
		return err
	}

	reason := reviewReason(att)
	title := fmt.Sprintf("%s (%s)", attendee.FullName(), company.Name)

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
		},
		"Attempt ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: att.ID}}},
		},
		"Wave": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: att.Wave}}},
		},
		"Reason": notionapi.SelectProperty{
			Select: notionapi.Option{Name: reason},
		},
		"Job Title": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: attendee.JobTitle}}},
		},
	}
	if att.SendError != "" {
		props["Error"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: truncate(att.SendError, 2000)}}},
		}
	}

	_, err = m.notion.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{DatabaseID: notionapi.DatabaseID(m.dbID)},
		Properties: props,
	})
	return eris.Wrapf(err, "review: create page for attempt %s", att.ID)
}

func reviewReason(att model.OutreachAttempt) string {
	if att.SuppressReason == model.SuppressAmbiguousRole {
		return "Ambiguous role"
	}
	return "Generation failed"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
