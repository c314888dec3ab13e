package model

import "errors"

// ErrNotFound é o sentinela de registro ausente compartilhado por todos os
// drivers. Vive aqui, e não no pacote storage, para que os drivers possam
// traduzir seus erros sem importar o pacote que os instancia.
var ErrNotFound = errors.New("not found")
