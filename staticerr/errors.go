package staticerr

import "errors"

var (
	ErrorRabbitConnectionFail = errors.New("RabbitUnvailable")
	ErrorResourceIsLocked     = errors.New("ResourceIsLocked")
	ErrorOrderNotFound        = errors.New("OrderNotFound")
	ErrorForbidden            = errors.New("Forbidden")
	ErrorValidation           = errors.New("ValidationFailed")
	ErrorOrderConsumed        = errors.New("OrderConsumed")
	ErrorUnknownTaskKind      = errors.New("UnknownTaskKind")
)
