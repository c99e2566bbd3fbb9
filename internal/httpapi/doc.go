// Package httpapi exposes the gateway over REST.
//
// The layer is deliberately thin: handlers parse requests, call into the
// domain services, and shape responses. Authentication failures always
// surface as generic messages; specific reasons live only in the logs and
// the audit trail. Crypto operations accept multipart uploads and return
// their output as attachments, mirroring how clients already talk to the
// service.
package httpapi
