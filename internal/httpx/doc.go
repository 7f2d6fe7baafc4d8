// Package httpx holds the JSON envelope shared by the HTTP surface and the
// request gate.
//
// Success responses are {"success":true,"data":...,"message":...}; failures
// are {"success":false,"error":{"code","message","errors","debug"}}. Every
// failure goes through [ErrorWriter], which maps nickauth error kinds to
// status codes.
package httpx
