// Command sentinelctl is the operator CLI for a running sentinel server.
package main

import "github.com/sentinelops/sentinel/cmd/sentinelctl/cmd"

func main() {
	cmd.Execute()
}
