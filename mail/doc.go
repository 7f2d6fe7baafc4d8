// Package mail renders and delivers account emails.
//
// [LogSender] logs messages instead of sending them and is meant for
// development. [SMTPSender] delivers over SMTP with PLAIN auth using
// go-mail. [Dispatcher] queues password reset emails so the request that
// triggered them never waits on delivery; it satisfies nickauth.ResetMailer.
package mail
