/*
Package web serves Zoe's REST API.

The routing layer is deliberately thin: handlers decode the request, call
the API endpoint and encode the reply. Authentication is HTTP Basic
against the configured back-end; the first successful login of an account
creates its user record. Errors from the lower layers are translated to
the documented status codes in one place, writeError.

Log streaming (GET /api/service/{id}/logs?stream=1) holds the connection
open and flushes each line as it is produced.
*/
package web
