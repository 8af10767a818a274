// Package model defines the provider-agnostic model abstractions and the
// Gateway that strategies use to talk to them.
//
// Providers (OpenAI, Azure OpenAI, Anthropic) implement Model in their own
// subpackages so strategies stay decoupled from vendor SDKs. The Gateway
// only translates formats: it drains the provider channels, fills missing
// tool call ids and maps transport failures to ModelUnavailable errors.
// Retries belong to the strategies.
package model
