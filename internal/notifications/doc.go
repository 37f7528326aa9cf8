// Package notifications delivers booking milestones via Telegram.
//
// The default implementation talks to the bot API using the credentials in
// config.toml and gracefully degrades to a no-op when no bot is configured.
// The engine treats every notification as fire and forget; errors are logged
// by callers, never acted on.
//
// The Telegram client doubles as the human captcha relay: the gate posts a
// challenge photo and RequestCode blocks on the chat for the reply.
package notifications
