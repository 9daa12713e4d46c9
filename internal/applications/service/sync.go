package service

import (
	"context"

	"bbys_backend/internal/applications/transport"
	"bbys_backend/internal/salesforce"
	"bbys_backend/platform/apperr"

	"github.com/tidwall/gjson"
)

// AcceptRecords hands CRM push-back records to the sync queue, one task per
// record. The body is one record or a list of them. A record the queue
// rejects does not stop the others.
func (s *Service) AcceptRecords(ctx context.Context, recordType string, body []byte) ([]transport.SyncResult, error) {
	if !salesforce.ValidRecordType(recordType) {
		return nil, apperr.BadRequest("unknown record type " + recordType)
	}
	if !gjson.ValidBytes(body) {
		return nil, apperr.BadRequest("body is not valid JSON")
	}

	parsed := gjson.ParseBytes(body)
	var records []gjson.Result
	switch {
	case parsed.IsArray():
		records = parsed.Array()
	case parsed.IsObject():
		records = []gjson.Result{parsed}
	default:
		return nil, apperr.BadRequest("expected a record or a list of records")
	}

	results := make([]transport.SyncResult, 0, len(records))
	for _, rec := range records {
		res := transport.SyncResult{SalesforceID: rec.Get("Id").String(), Status: transport.SyncQueued}
		switch {
		case !rec.IsObject():
			res.Status, res.Error = transport.SyncRejected, "record is not an object"
		case res.SalesforceID == "":
			res.Status, res.Error = transport.SyncRejected, "record has no salesforce id"
		default:
			if err := s.sync.EnqueueSync(ctx, recordType, []byte(rec.Raw)); err != nil {
				s.log.Warn("salesforce record not accepted",
					"record_type", recordType, "salesforce_id", res.SalesforceID, "error", err)
				res.Status, res.Error = transport.SyncRejected, err.Error()
			}
		}
		results = append(results, res)
	}
	return results, nil
}
