package notifications

import (
	"context"
	"fmt"
	"html"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends rendered templates through Amazon SES.
type SESSender struct {
	client   SESAPI
	renderer *Renderer
	from     string
}

func NewSESSender(client SESAPI, renderer *Renderer, from string) *SESSender {
	return &SESSender{client: client, renderer: renderer, from: from}
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func (s *SESSender) Send(ctx context.Context, template string, to Recipient, payload map[string]any) (string, error) {
	if to.Email == "" {
		return "", fmt.Errorf("recipient %s has no email address", to.Role)
	}

	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["recipient_name"] = to.Name
	if to.Name == "" {
		data["recipient_name"] = to.Email
	}

	subject, body, err := s.renderer.Render(template, data)
	if err != nil {
		return "", err
	}
	text := html.UnescapeString(tagPattern.ReplaceAllString(body, ""))

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
