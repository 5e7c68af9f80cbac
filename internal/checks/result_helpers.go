package checks

import "coxstatus/internal/cox"

func NewResult(account cox.Account, checkID string, status Status, message string) Result {
	res := Result{
		Status:  status,
		Account: account.Username,
		CheckID: checkID,
	}
	if message != "" {
		res.Message = message
	}
	return res
}

func PassResult(account cox.Account, checkID string) Result {
	return NewResult(account, checkID, StatusPass, "")
}

func PassResultWithMessage(account cox.Account, checkID string, message string) Result {
	return NewResult(account, checkID, StatusPass, message)
}

func FailResult(account cox.Account, checkID string, message string) Result {
	return NewResult(account, checkID, StatusFail, message)
}

func ErrorResult(account cox.Account, checkID string, message string) Result {
	return NewResult(account, checkID, StatusError, message)
}

func SkippedResult(account cox.Account, checkID string, message string) Result {
	return NewResult(account, checkID, StatusSkipped, message)
}

func PassResultWithMetadata(account cox.Account, checkID string, message string, metadata map[string]any) Result {
	res := NewResult(account, checkID, StatusPass, message)
	res.Metadata = metadata
	return res
}

func FailResultWithMetadata(account cox.Account, checkID string, message string, metadata map[string]any) Result {
	res := NewResult(account, checkID, StatusFail, message)
	res.Metadata = metadata
	return res
}
