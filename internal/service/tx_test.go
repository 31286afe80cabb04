package service

import "context"

type testTxRepos struct {
	conversations ConversationRepository
	messages      MessageRepository
}

func (t *testTxRepos) Conversations() ConversationRepository {
	return t.conversations
}

func (t *testTxRepos) Messages() MessageRepository {
	return t.messages
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
