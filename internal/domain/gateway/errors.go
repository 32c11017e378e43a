package gateway

import "errors"

// Kind — класс ошибки шлюза. HTTP-слой по нему выбирает статус ответа.
type Kind int

const (
	// KindValidation: не хватает обязательного входного поля.
	KindValidation Kind = iota + 1
	// KindPrecondition: операция вызвана не по порядку (нет start, нет sendCode).
	KindPrecondition
	// KindUnsupported: у внешнего клиента нет нужной способности.
	KindUnsupported
	// KindUpstreamContract: ответ внешнего клиента без ожидаемых полей.
	KindUpstreamContract
	// KindExternalService: любая прочая ошибка внешнего клиента, включая сеть.
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindUnsupported:
		return "unsupported"
	case KindUpstreamContract:
		return "upstream_contract"
	case KindExternalService:
		return "external_service"
	default:
		return "unknown"
	}
}

// Error — ошибка шлюза с классом. Msg может быть пустым: тогда текст берётся
// из исходной ошибки как есть.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf извлекает класс из цепочки ошибок. Неклассифицированная ошибка
// считается ошибкой внешнего сервиса.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindExternalService
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func preconditionError(msg string) error {
	return &Error{Kind: KindPrecondition, Msg: msg}
}

func unsupportedError(msg string, err error) error {
	return &Error{Kind: KindUnsupported, Msg: msg, Err: err}
}

func upstreamContractError(msg string) error {
	return &Error{Kind: KindUpstreamContract, Msg: msg}
}

// externalError оборачивает ошибку провайдера, сохраняя её текст без изменений.
// Уже классифицированные ошибки проходят насквозь.
func externalError(err error) error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return err
	}
	return &Error{Kind: KindExternalService, Err: err}
}
