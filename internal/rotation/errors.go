package rotation

import "errors"

var (
	ErrNoInstances          = errors.New("política de rodízio precisa de pelo menos uma instância")
	ErrDuplicateInstance    = errors.New("instância duplicada na política de rodízio")
	ErrInstanceNotConnected = errors.New("instância não conectada")
	ErrLastInstance         = errors.New("não é possível remover a última instância da política")
	ErrInvalidStrategy      = errors.New("estratégia de rodízio inválida")
	ErrInvalidCap           = errors.New("limite por instância deve ser positivo")
	ErrRunActive            = errors.New("operação indisponível com disparo em andamento")

	// ErrNoEligibleInstance indica exaustão transitória: nenhuma instância
	// ativa, conectada e abaixo do limite. Quem dispara deve pausar a
	// campanha, nunca descartar a mensagem.
	ErrNoEligibleInstance = errors.New("nenhuma instância elegível para envio")
)
