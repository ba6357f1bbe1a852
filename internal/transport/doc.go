// Package transport defines the narrow capability surface the scheduler needs from a
// messaging platform. Drivers live in subpackages (discord, telegram).
package transport
