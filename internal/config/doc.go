// Package config provides configuration management for pubsubdesk.
//
// Configuration is read from a single YAML file, by default
// ~/.config/pubsubdesk/config.yaml. A missing file is not an error: the
// built-in defaults (Google OAuth endpoints, a loopback redirect on port 8085
// and the Pub/Sub scope) are used instead. Environment variables prefixed
// with PUBSUBDESK_ are applied on top of the file.
//
// # File Format
//
//	oauth:
//	  clientID: 1234-abc.apps.googleusercontent.com
//	  clientSecret: GOCSPX-...
//	  redirectURL: http://localhost:8085/
//	  scopes:
//	    - openid
//	    - email
//	    - https://www.googleapis.com/auth/pubsub
//	auth:
//	  callbackTimeout: 5m
//	  httpTimeout: 30s
//	logging:
//	  level: info
//
// # Environment Overrides
//
//	PUBSUBDESK_CLIENT_ID, PUBSUBDESK_CLIENT_SECRET, PUBSUBDESK_REDIRECT_URL,
//	PUBSUBDESK_SCOPES (comma separated), PUBSUBDESK_CALLBACK_TIMEOUT,
//	PUBSUBDESK_HTTP_TIMEOUT, PUBSUBDESK_LOG_LEVEL
//
// # Validation
//
// Validate reports every problem at once as ValidationErrors. The redirect
// URL determines the fixed local port the callback listener binds, so it must
// be a plain http URL on a loopback host with an explicit port.
package config
