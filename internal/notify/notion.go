package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
)

// PageCreator is the slice of the Notion API this package needs.
// The interface enables mocking in tests.
type PageCreator interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

type notionPageService struct {
	client *notionapi.Client
}

func (s *notionPageService) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return s.client.Page.Create(ctx, req)
}

// NotionNotifier records each event as a page in a Notion database,
// giving operations a reviewable feed of completions and risk alerts.
type NotionNotifier struct {
	pages      PageCreator
	databaseID string
}

// NewNotionNotifier creates a notifier writing to the given database.
func NewNotionNotifier(token, databaseID string) *NotionNotifier {
	return &NotionNotifier{
		pages:      &notionPageService{client: notionapi.NewClient(notionapi.Token(token))},
		databaseID: databaseID,
	}
}

// NewNotionNotifierWithPages creates a notifier over a caller-supplied
// page service, for testing.
func NewNotionNotifierWithPages(pages PageCreator, databaseID string) *NotionNotifier {
	return &NotionNotifier{pages: pages, databaseID: databaseID}
}

// Notify implements Notifier.
func (n *NotionNotifier) Notify(ctx context.Context, event Event) error {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(n.databaseID),
		},
		Properties: eventToProperties(event),
	}

	if _, err := n.pages.CreatePage(ctx, req); err != nil {
		return fmt.Errorf("notion notify: %w", err)
	}
	return nil
}

func eventToProperties(event Event) notionapi.Properties {
	title := event.ReportName
	if title == "" {
		title = event.JobID
	}

	props := notionapi.Properties{
		"Report": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: title},
				},
			},
		},
		"Event": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(event.Type)},
		},
		"Job ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: event.JobID},
				},
			},
		},
		"Occurred": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: dateNow()},
		},
	}

	if event.Severity != "" {
		props["Severity"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: event.Severity},
		}
	}
	if event.Detail != "" {
		props["Detail"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: event.Detail},
				},
			},
		}
	}
	return props
}

func dateNow() *notionapi.Date {
	d := notionapi.Date(time.Now())
	return &d
}

var _ Notifier = (*NotionNotifier)(nil)
