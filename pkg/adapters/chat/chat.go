// Package chat is the workspace-chat adapter: message posting plus a
// channel crawler. Authentication is either a static bot token or an
// OAuth refresh-token grant.
package chat

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/clients"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/jsonx"
	"github.com/opsmux/opsmux/pkg/logger"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
	"golang.org/x/oauth2"
)

// System is the system type this adapter serves
const System connector.SystemType = "chat"

// TaskSendMessage posts one message to a channel
const TaskSendMessage task.Type = "send_message"

// defaultBaseURL is the hosted API endpoint; overridable per connector
const defaultBaseURL = "https://slack.com/api"

// channelPageSize bounds one page of the channel crawl
const channelPageSize = 200

// Client calls the chat API with a resolved access token
type Client struct {
	http    *clients.HTTPClient
	baseURL string
	token   string
}

// Close releases pooled connections
func (c *Client) Close() error {
	return c.http.Close()
}

// NewClient authenticates from resolved parameters. A bot token is used
// directly; otherwise a refresh-token grant is exchanged for an access
// token.
func NewClient(ctx context.Context, params credentials.Params) (interface{}, error) {
	baseURL := params.Get("url")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	token := params.Get("bot_token")
	if token == "" {
		clientID, err := params.Require("client_id")
		if err != nil {
			return nil, err
		}
		clientSecret, err := params.Require("client_secret")
		if err != nil {
			return nil, err
		}
		refreshToken, err := params.Require("refresh_token")
		if err != nil {
			return nil, err
		}

		cfg := &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: baseURL + "/oauth.v2.access"},
		}
		refreshed, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to refresh access token")
		}
		token = refreshed.AccessToken
	}

	return &Client{
		http:    clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get()),
		baseURL: baseURL,
		token:   token,
	}, nil
}

// apiReply is the envelope every chat API call returns
type apiReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`

	Channels []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		IsArchived bool   `json:"is_archived"`
		IsPrivate  bool   `json:"is_private"`
		NumMembers int    `json:"num_members"`
	} `json:"channels,omitempty"`

	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

func (c *Client) call(ctx context.Context, method string, form url.Values) (*apiReply, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + c.token,
		"Content-Type":  "application/x-www-form-urlencoded",
	}

	resp, err := c.http.Post(ctx, c.baseURL+"/"+method, strings.NewReader(form.Encode()), headers)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConnection, "chat API call %s failed", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read chat API response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrorTypeData, "chat API returned status %d for %s", resp.StatusCode, method)
	}

	var reply apiReply
	if err := jsonx.Unmarshal(body, &reply); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode chat API response")
	}
	if !reply.OK {
		return nil, errors.Newf(errors.ErrorTypeData, "chat API call %s failed: %s", method, reply.Error)
	}
	return &reply, nil
}

func sendMessage(ctx context.Context, client interface{}, _ task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "chat handler received wrong client type")
	}
	if p.Message == nil || p.Message.Channel == "" || p.Message.Text == "" {
		return nil, errors.New(errors.ErrorTypeData, "channel and text are required")
	}

	form := url.Values{}
	form.Set("channel", p.Message.Channel)
	form.Set("text", p.Message.Text)

	reply, err := c.call(ctx, "chat.postMessage", form)
	if err != nil {
		return nil, err
	}
	return &task.Raw{Text: "message sent to " + p.Message.Channel + " at " + reply.TS}, nil
}

// channelLister crawls channels with the API's native cursor pagination
type channelLister struct {
	client *Client
}

type channelEntry struct {
	id         string
	name       string
	archived   bool
	private    bool
	numMembers int
}

func (l *channelLister) Category() string { return "channel" }

func (l *channelLister) ListPage(ctx context.Context, cursor metasync.Cursor) ([]interface{}, metasync.Cursor, error) {
	form := url.Values{}
	form.Set("limit", strconv.Itoa(channelPageSize))
	form.Set("types", "public_channel,private_channel")
	if cursor != metasync.CursorStart {
		form.Set("cursor", string(cursor))
	}

	reply, err := l.client.call(ctx, "conversations.list", form)
	if err != nil {
		return nil, "", err
	}

	items := make([]interface{}, 0, len(reply.Channels))
	for _, ch := range reply.Channels {
		items = append(items, channelEntry{
			id:         ch.ID,
			name:       ch.Name,
			archived:   ch.IsArchived,
			private:    ch.IsPrivate,
			numMembers: ch.NumMembers,
		})
	}
	return items, metasync.Cursor(reply.ResponseMetadata.NextCursor), nil
}

func (l *channelLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	e, ok := item.(channelEntry)
	if !ok {
		return "", nil, errors.New(errors.ErrorTypeData, "unexpected channel item type")
	}
	return e.id, map[string]interface{}{
		"id":          e.id,
		"name":        e.name,
		"archived":    e.archived,
		"private":     e.private,
		"num_members": e.numMembers,
	}, nil
}

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeURL:          "url",
		connector.KeyTypeBotToken:     "bot_token",
		connector.KeyTypeClientID:     "client_id",
		connector.KeyTypeClientSecret: "client_secret",
		connector.KeyTypeRefreshToken: "refresh_token",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskSendMessage: {Handler: sendMessage, Shape: task.ShapeText},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeBotToken),
			connector.NewKeySet(connector.KeyTypeClientID, connector.KeyTypeClientSecret, connector.KeyTypeRefreshToken),
		},
		NewClient: NewClient,
		Listers: func(client interface{}) []metasync.Lister {
			c, ok := client.(*Client)
			if !ok {
				return nil
			}
			return []metasync.Lister{&channelLister{client: c}}
		},
	})
}
