package postgres

import (
	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
)

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeHost:     "host",
		connector.KeyTypePort:     "port",
		connector.KeyTypeDatabase: "database",
		connector.KeyTypeUsername: "user",
		connector.KeyTypePassword: "password",
		connector.KeyTypeSSLMode:  "sslmode",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskExecuteQuery: {Handler: executeQuery, Shape: task.ShapeTable},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeHost, connector.KeyTypeDatabase, connector.KeyTypeUsername, connector.KeyTypePassword),
		},
		NewClient: NewClient,
		Listers: func(client interface{}) []metasync.Lister {
			c, ok := client.(*Client)
			if !ok {
				return nil
			}
			return []metasync.Lister{&tableLister{client: c}}
		},
	})
}
