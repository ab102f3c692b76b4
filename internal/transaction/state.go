package transaction

import "github.com/Adjeiq/Hearth/internal/model"

// forward holds the single legal next step for each non-terminal state.
// CANCELLED is additionally reachable from any non-terminal state.
var forward = map[model.TransactionStatus]model.TransactionStatus{
	model.StatusInitiated:            model.StatusDocumentCollection,
	model.StatusDocumentCollection:   model.StatusPaymentPending,
	model.StatusPaymentPending:       model.StatusPaymentCompleted,
	model.StatusPaymentCompleted:     model.StatusDocumentVerification,
	model.StatusDocumentVerification: model.StatusCompleted,
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to model.TransactionStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == model.StatusCancelled {
		return true
	}
	return forward[from] == to
}
