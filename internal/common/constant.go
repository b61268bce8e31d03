// Package common contains shared constants and sentinel errors used across
// memokeeper components.
package common

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// PipelineTokenHeaderName carries the shared secret of the processing
// pipeline on AdvanceRecord calls.
const PipelineTokenHeaderName = "pipeline_token"
