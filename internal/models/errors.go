package models

import "errors"

// Sentinel errors shared between services, repositories and handlers.
var (
	// ErrKeyExists — ключ с таким public key уже сохранён.
	ErrKeyExists = errors.New("key with this public key already exists")

	// ErrWalletInUse — у кошелька есть активные сессии или pending-транзакции.
	ErrWalletInUse = errors.New("wallet is in use")

	// ErrBadPassword — расшифровка секрета не удалась (неверный пароль или битый blob).
	ErrBadPassword = errors.New("wrong password or corrupted key data")

	// ErrBadLink — connect link без валидного запроса `r`.
	ErrBadLink = errors.New("malformed connect link")

	// ErrNoEncryptedSecret — операция требует секрет, а ключ watch-only.
	ErrNoEncryptedSecret = errors.New("key has no encrypted secret")

	ErrNotFound = errors.New("not found")
)
