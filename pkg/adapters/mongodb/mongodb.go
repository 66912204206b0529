// Package mongodb is the MongoDB adapter: database command execution
// plus a collection crawler.
package mongodb

import (
	"context"

	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/jsonx"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// System is the system type this adapter serves
const System connector.SystemType = "mongodb"

// TaskRunCommand executes one database command and returns its reply
const TaskRunCommand task.Type = "run_command"

// Client wraps a mongo client plus the default database name
type Client struct {
	client   *mongo.Client
	database string
}

// Close disconnects the underlying client
func (c *Client) Close() error {
	return c.client.Disconnect(context.Background())
}

// NewClient connects to MongoDB from resolved parameters
func NewClient(ctx context.Context, params credentials.Params) (interface{}, error) {
	uri, err := params.Require("connection_string")
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "mongodb ping failed")
	}

	database := params.Get("database")
	if database == "" {
		database = "admin"
	}
	return &Client{client: client, database: database}, nil
}

// runCommand executes a named database command ({<target>: 1}) and
// returns the reply document as one (command, output) pair.
func runCommand(ctx context.Context, client interface{}, _ task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "mongodb handler received wrong client type")
	}
	if p.Command == nil || p.Command.Target == "" {
		return nil, errors.New(errors.ErrorTypeData, "command name is required")
	}

	var reply bson.M
	err := c.client.Database(c.database).RunCommand(ctx, bson.D{{Key: p.Command.Target, Value: 1}}).Decode(&reply)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData, "command %s failed", p.Command.Target)
	}

	encoded, err := jsonx.Marshal(reply)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode command reply")
	}

	return &task.Raw{Commands: []task.CommandOutput{{
		Command: p.Command.Target,
		Output:  string(encoded),
	}}}, nil
}

// collectionLister crawls collections across all non-system databases.
// The server reply is not paginated, so the crawl completes in one page.
type collectionLister struct {
	client *Client
}

type collectionEntry struct {
	database string
	name     string
	collType string
}

func (l *collectionLister) Category() string { return "collection" }

func (l *collectionLister) ListPage(ctx context.Context, _ metasync.Cursor) ([]interface{}, metasync.Cursor, error) {
	dbNames, err := l.client.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, "", err
	}

	var items []interface{}
	for _, dbName := range dbNames {
		if dbName == "admin" || dbName == "local" || dbName == "config" {
			continue
		}
		specs, err := l.client.client.Database(dbName).ListCollectionSpecifications(ctx, bson.D{})
		if err != nil {
			return nil, "", err
		}
		for _, spec := range specs {
			items = append(items, collectionEntry{database: dbName, name: spec.Name, collType: spec.Type})
		}
	}
	return items, "", nil
}

func (l *collectionLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	e, ok := item.(collectionEntry)
	if !ok {
		return "", nil, errors.New(errors.ErrorTypeData, "unexpected collection item type")
	}
	return e.database + "." + e.name, map[string]interface{}{
		"database": e.database,
		"name":     e.name,
		"type":     e.collType,
	}, nil
}

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeConnectionString: "connection_string",
		connector.KeyTypeDatabase:         "database",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskRunCommand: {Handler: runCommand, Shape: task.ShapeCommandOutput},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeConnectionString),
		},
		NewClient: NewClient,
		Listers: func(client interface{}) []metasync.Lister {
			c, ok := client.(*Client)
			if !ok {
				return nil
			}
			return []metasync.Lister{&collectionLister{client: c}}
		},
	})
}
