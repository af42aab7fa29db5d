// Package configs provides the embedded configuration template written by
// `figurechat init`.
package configs

import _ "embed"

// ConfigTemplate is the annotated starter config. Every value shown matches
// the built-in default, so an untouched file changes nothing.
//
//go:embed figurechat.example.yaml
var ConfigTemplate string
