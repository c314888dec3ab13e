package dispatch

import "errors"

var (
	ErrAlreadyRunning = errors.New("campanha já possui disparo em andamento")
	ErrInvalidState   = errors.New("transição de estado inválida para o disparo")
	ErrNoLeads        = errors.New("campanha sem leads válidos para disparo")
)
