// Command adapter-registry serves and maintains the adapter type registry.
package main

import (
	"github.com/nimburion/adapter-registry/pkg/cli"
)

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "adapter-registry",
		Description: "Adapter type registry backed by S3 and DynamoDB",
	}))
}
