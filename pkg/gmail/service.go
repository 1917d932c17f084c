package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
	"clientmail-backend/pkg/mailaddr"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is called when the oauth token source refreshes the access
// token, so the caller can persist the new token.
type TokenUpdateFunc func(token *oauth2.Token) error

// Provider reads a mailbox through the Gmail API. It implements
// messagedomain.MailProvider.
type Provider struct {
	clientID     string
	clientSecret string
	accessToken  string
	refreshToken string
	onRefresh    TokenUpdateFunc
	logger       *zap.Logger
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	logger   *zap.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.logger.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

// NewProvider creates a Gmail-backed mail provider for a single mailbox.
func NewProvider(clientID, clientSecret, accessToken, refreshToken string, onRefresh TokenUpdateFunc, logger *zap.Logger) *Provider {
	return &Provider{
		clientID:     clientID,
		clientSecret: clientSecret,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		onRefresh:    onRefresh,
		logger:       logger,
	}
}

func (p *Provider) service(ctx context.Context) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  p.accessToken,
		RefreshToken: p.refreshToken,
		TokenType:    "Bearer",
	}

	// Force a refresh on first use when a refresh token is available.
	if p.refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: p.onRefresh,
		logger:   p.logger,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// FetchMessages pulls messages matching the address filter and date range,
// following NextPageToken until pageSize messages are collected or the result
// set is exhausted.
func (p *Provider) FetchMessages(ctx context.Context, filter messagedomain.AddressFilter, start, end time.Time, pageSize int) ([]*messagedomain.Message, error) {
	srv, err := p.service(ctx)
	if err != nil {
		return nil, err
	}

	if pageSize <= 0 {
		pageSize = 100
	}

	q := buildQuery(filter, start, end)

	const user = "me"
	var out []*messagedomain.Message
	pageToken := ""
	for len(out) < pageSize {
		perPage := int64(pageSize - len(out))
		if perPage > 500 {
			perPage = 500
		}

		listCall := srv.Users.Messages.List(user).MaxResults(perPage).Context(ctx)
		if q != "" {
			listCall = listCall.Q(q)
		}
		if pageToken != "" {
			listCall = listCall.PageToken(pageToken)
		}

		resp, err := listCall.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list messages: %w", err)
		}

		for _, ref := range resp.Messages {
			full, err := srv.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				p.logger.Warn("failed to fetch message detail",
					zap.String("message_id", ref.Id),
					zap.Error(err))
				continue
			}
			out = append(out, convertMessage(full))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return out, nil
}

// buildQuery turns the address filter and date range into a Gmail search
// expression. Domains and emails are OR'd together over from/to/cc/bcc, which
// matches the store-side relevance predicate.
func buildQuery(filter messagedomain.AddressFilter, start, end time.Time) string {
	var terms []string
	for _, d := range filter.Domains {
		d = mailaddr.NormalizeDomain(d)
		terms = append(terms,
			fmt.Sprintf("from:%s", d),
			fmt.Sprintf("to:%s", d),
			fmt.Sprintf("cc:%s", d),
			fmt.Sprintf("bcc:%s", d))
	}
	for _, e := range filter.Emails {
		e = mailaddr.NormalizeEmail(e)
		terms = append(terms,
			fmt.Sprintf("from:%s", e),
			fmt.Sprintf("to:%s", e),
			fmt.Sprintf("cc:%s", e),
			fmt.Sprintf("bcc:%s", e))
	}

	var parts []string
	if len(terms) > 0 {
		parts = append(parts, "{"+strings.Join(terms, " ")+"}")
	}
	if !start.IsZero() {
		parts = append(parts, "after:"+start.Format("2006/01/02"))
	}
	if !end.IsZero() {
		// Gmail's before: is exclusive on the day boundary.
		parts = append(parts, "before:"+end.AddDate(0, 0, 1).Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

func convertMessage(msg *gmail.Message) *messagedomain.Message {
	body, isHTML := extractBody(msg.Payload)
	if isHTML {
		body = htmlTagRe.ReplaceAllString(body, " ")
		body = strings.ReplaceAll(body, "&nbsp;", " ")
		body = strings.ReplaceAll(body, "&lt;", "<")
		body = strings.ReplaceAll(body, "&gt;", ">")
		body = strings.ReplaceAll(body, "&amp;", "&")
		body = strings.ReplaceAll(body, "&quot;", "\"")
		body = strings.Join(strings.Fields(body), " ")
	}

	return &messagedomain.Message{
		ID:           msg.Id,
		Subject:      getHeader(msg.Payload.Headers, "Subject"),
		FromAddress:  addressOf(getHeader(msg.Payload.Headers, "From")),
		ToAddress:    addressOf(getHeader(msg.Payload.Headers, "To")),
		CcAddresses:  addressListOf(getHeader(msg.Payload.Headers, "Cc")),
		BccAddresses: addressListOf(getHeader(msg.Payload.Headers, "Bcc")),
		Date:         time.Unix(msg.InternalDate/1000, 0),
		Body:         body,
		Labels:       msg.LabelIds,
	}
}

// addressOf reduces a "Name <email@example.com>" header to the normalized
// bare address.
func addressOf(header string) string {
	header = strings.TrimSpace(header)
	if open := strings.LastIndex(header, "<"); open >= 0 {
		if close := strings.LastIndex(header, ">"); close > open {
			header = header[open+1 : close]
		}
	}
	return mailaddr.NormalizeEmail(header)
}

func addressListOf(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(header, ",") {
		if addr := addressOf(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func extractBody(payload *gmail.MessagePart) (string, bool) {
	if payload == nil {
		return "", false
	}
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data), payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/html":
						htmlBody = string(data)
					case "text/plain":
						plainBody = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, true
}
