// Package kafka is the Kafka adapter: consumer-group inspection through
// the cluster admin API plus a topic crawler.
package kafka

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/jsonx"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
)

// System is the system type this adapter serves
const System connector.SystemType = "kafka"

// TaskDescribeConsumerGroup reports membership and state for one group
const TaskDescribeConsumerGroup task.Type = "describe_consumer_group"

// Client wraps a sarama cluster admin connection
type Client struct {
	admin sarama.ClusterAdmin
}

// Close shuts down the admin connection
func (c *Client) Close() error {
	return c.admin.Close()
}

// NewClient connects a cluster admin from resolved parameters
func NewClient(_ context.Context, params credentials.Params) (interface{}, error) {
	brokers, err := params.Require("brokers")
	if err != nil {
		return nil, err
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	if user := params.Get("user"); user != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.User = user
		cfg.Net.SASL.Password = params.Get("password")
	}

	admin, err := sarama.NewClusterAdmin(strings.Split(brokers, ","), cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to kafka")
	}
	return &Client{admin: admin}, nil
}

// groupDescription is the serialized reply for one consumer group
type groupDescription struct {
	GroupID      string   `json:"group_id"`
	State        string   `json:"state"`
	ProtocolType string   `json:"protocol_type"`
	Protocol     string   `json:"protocol"`
	Members      []string `json:"members"`
}

func describeConsumerGroup(_ context.Context, client interface{}, _ task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "kafka handler received wrong client type")
	}
	if p.Command == nil || p.Command.Target == "" {
		return nil, errors.New(errors.ErrorTypeData, "consumer group id is required")
	}

	descriptions, err := c.admin.DescribeConsumerGroups([]string{p.Command.Target})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData, "failed to describe consumer group %s", p.Command.Target)
	}
	if len(descriptions) == 0 {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "consumer group %s not found", p.Command.Target)
	}

	d := descriptions[0]
	out := groupDescription{
		GroupID:      d.GroupId,
		State:        d.State,
		ProtocolType: d.ProtocolType,
		Protocol:     d.Protocol,
	}
	for _, m := range d.Members {
		out.Members = append(out.Members, m.ClientId+"@"+m.ClientHost)
	}

	encoded, err := jsonx.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode group description")
	}

	return &task.Raw{Commands: []task.CommandOutput{{
		Command: "describe_consumer_group " + p.Command.Target,
		Output:  string(encoded),
	}}}, nil
}

// topicLister crawls topics with their partition and replication
// settings. The admin reply is a single map, so one page covers all.
type topicLister struct {
	client *Client
}

type topicEntry struct {
	name   string
	detail sarama.TopicDetail
}

func (l *topicLister) Category() string { return "topic" }

func (l *topicLister) ListPage(_ context.Context, _ metasync.Cursor) ([]interface{}, metasync.Cursor, error) {
	topics, err := l.client.admin.ListTopics()
	if err != nil {
		return nil, "", err
	}

	items := make([]interface{}, 0, len(topics))
	for name, detail := range topics {
		items = append(items, topicEntry{name: name, detail: detail})
	}
	return items, "", nil
}

func (l *topicLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	e, ok := item.(topicEntry)
	if !ok {
		return "", nil, errors.New(errors.ErrorTypeData, "unexpected topic item type")
	}
	return e.name, map[string]interface{}{
		"name":               e.name,
		"partitions":         e.detail.NumPartitions,
		"replication_factor": e.detail.ReplicationFactor,
	}, nil
}

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeBrokers:  "brokers",
		connector.KeyTypeUsername: "user",
		connector.KeyTypePassword: "password",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskDescribeConsumerGroup: {Handler: describeConsumerGroup, Shape: task.ShapeCommandOutput},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeBrokers),
		},
		NewClient: NewClient,
		Listers: func(client interface{}) []metasync.Lister {
			c, ok := client.(*Client)
			if !ok {
				return nil
			}
			return []metasync.Lister{&topicLister{client: c}}
		},
	})
}
