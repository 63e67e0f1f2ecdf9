// Package transports links every built-in transport into the binary so each
// registers itself with the default registry.
package transports

import (
	_ "github.com/drblury/crudflow/transport/aws"
	_ "github.com/drblury/crudflow/transport/channel"
	_ "github.com/drblury/crudflow/transport/http"
	_ "github.com/drblury/crudflow/transport/io"
	_ "github.com/drblury/crudflow/transport/kafka"
	_ "github.com/drblury/crudflow/transport/nats"
	_ "github.com/drblury/crudflow/transport/rabbitmq"
)

// Names lists the transports this package registers.
var Names = []string{"aws", "channel", "http", "io", "kafka", "nats", "rabbitmq"}
