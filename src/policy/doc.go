// Package policy provides reference publish, stop and resilience policies for
// the iteration engine, and a registry building them from configuration.
//
// Every policy instance carries its own state and belongs to a single engine.
package policy
