package usecase

import "context"

type MessageProducer interface {
	WriteRawMessage(ctx context.Context, req *WriteRawMessageReq) error
	Ping(ctx context.Context) error
}

// TxManager исполняет функцию внутри транзакции хранилища;
// репозитории достают транзакцию из контекста.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// ConnMonitor сообщает о доступности внешних систем для быстрого отказа (circuit breaking).
type ConnMonitor interface {
	StoreHealthy() bool
	BrokerHealthy() bool
}
