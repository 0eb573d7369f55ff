// Package auth exchanges platform API keys for bearer tokens.
//
// API keys are located through declarations such as env:TRUSTX_SOURCE_API_KEY or
// file:~/.trustx/destination.key. Issued tokens are cached per environment for the
// lifetime of a run.
package auth
