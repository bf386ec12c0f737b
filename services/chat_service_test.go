package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/conversation"
	"llm-chatbot/models"
	"llm-chatbot/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_DegradedWithNilModel(t *testing.T) {
	var model *ai.Model
	log := conversation.NewLog(nil)
	svc := NewChatService(model, nil, log, 3)

	_, err := svc.Chat(context.Background(), "", "Hello")
	require.Error(t, err)

	var appErr *utils.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, utils.KindModelUnavailable, appErr.Kind)
	assert.Equal(t, "Model failed to load. Check logs.", appErr.Message)
	assert.False(t, svc.ModelLoaded())
	assert.Equal(t, 0, log.Len())
}

func TestChat_PlainMode(t *testing.T) {
	gen := &fakeGenerator{}
	log := conversation.NewLog(nil)
	svc := NewChatService(gen, nil, log, 3)

	resp, err := svc.Chat(context.Background(), "", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello and a reply", resp)

	prompt, maxLen := gen.last()
	assert.Equal(t, "Hello", prompt)
	assert.Equal(t, ai.PlainMaxLength, maxLen)

	entries, err := svc.History(context.Background(), models.DefaultSessionID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.Entry{Role: models.RoleUser, Content: "Hello"}, models.Entry{Role: entries[0].Role, Content: entries[0].Content})
	assert.Equal(t, models.RoleBot, entries[1].Role)
	assert.Equal(t, resp, entries[1].Content)
}

func TestChat_RAGPromptFraming(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewChatService(gen, stubRetriever{texts: []string{"Alpha Beta", "Gamma"}}, conversation.NewLog(nil), 3)

	_, err := svc.Chat(context.Background(), "s1", "What is Alpha?")
	require.NoError(t, err)

	prompt, maxLen := gen.last()
	assert.Equal(t, "Context: Alpha Beta Gamma Query: What is Alpha?", prompt)
	assert.Equal(t, ai.RAGMaxLength, maxLen)
}

func TestChat_RAGWithNoMatches(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewChatService(gen, stubRetriever{texts: []string{}}, conversation.NewLog(nil), 3)

	_, err := svc.Chat(context.Background(), "", "Hi")
	require.NoError(t, err)

	prompt, _ := gen.last()
	assert.Equal(t, "Context:  Query: Hi", prompt)
}

func TestChat_GenerationFailureLeavesOrphanUserEntry(t *testing.T) {
	log := conversation.NewLog(nil)
	svc := NewChatService(&fakeGenerator{}, nil, log, 3)

	_, err := svc.Chat(context.Background(), "", "please fail")
	require.Error(t, err)
	assert.Equal(t, utils.KindGeneration, utils.KindOf(err))

	entries := log.Entries("")
	require.Len(t, entries, 1)
	assert.Equal(t, models.RoleUser, entries[0].Role)
}

func TestChat_RetrievalFailureIsUpstream(t *testing.T) {
	gen := &fakeGenerator{}
	log := conversation.NewLog(nil)
	svc := NewChatService(gen, stubRetriever{err: errors.New("index down")}, log, 3)

	_, err := svc.Chat(context.Background(), "", "Hello")
	assert.Equal(t, utils.KindUpstream, utils.KindOf(err))
	assert.Equal(t, 1, log.Len())
	assert.Empty(t, gen.prompts)
}

func TestChat_ConcurrentLogCount(t *testing.T) {
	log := conversation.NewLog(nil)
	svc := NewChatService(&fakeGenerator{}, nil, log, 3)

	const n = 40
	var successes, failures atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prompt := fmt.Sprintf("hello %d", i)
			if i%3 == 0 {
				prompt = fmt.Sprintf("fail %d", i)
			}
			if _, err := svc.Chat(context.Background(), "", prompt); err != nil {
				failures.Add(1)
				return
			}
			successes.Add(1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(n), successes.Load()+failures.Load())
	assert.Equal(t, int(2*successes.Load()+failures.Load()), log.Len())
}

func TestChat_SessionsAreSeparate(t *testing.T) {
	svc := NewChatService(&fakeGenerator{}, nil, conversation.NewLog(nil), 3)

	_, err := svc.Chat(context.Background(), "a", "one")
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), "b", "two")
	require.NoError(t, err)

	for _, sid := range []string{"a", "b"} {
		entries, err := svc.History(context.Background(), sid)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	}
	entries, err := svc.History(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCronService_SessionJanitor(t *testing.T) {
	log := conversation.NewLog(nil)
	c := NewCronService()

	require.NoError(t, c.ScheduleSessionJanitor(log, 0, time.Minute))
	assert.Equal(t, 0, c.Jobs())

	require.NoError(t, c.ScheduleSessionJanitor(log, time.Hour, time.Minute))
	assert.Equal(t, 1, c.Jobs())

	c.Start()
	c.Stop()
}

func TestHistory_FallsBackToArchiveAfterEviction(t *testing.T) {
	log := conversation.NewLog(nil)
	svc := NewChatService(&fakeGenerator{}, nil, log, 3)
	archive := &fakeArchive{entries: []models.Entry{
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleBot, Content: "one and a reply"},
	}}
	svc.UseArchive(archive, 0)

	_, err := svc.Chat(context.Background(), "a", "one")
	require.NoError(t, err)

	entries, err := svc.History(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 0, archive.calls)

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, log.EvictIdle(time.Millisecond))

	entries, err = svc.History(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, archive.entries, entries)
	assert.Equal(t, 1, archive.calls)
	assert.Equal(t, DefaultArchiveHistoryLimit, archive.limit)
}

func TestHistory_ArchiveFailureIsUpstream(t *testing.T) {
	svc := NewChatService(&fakeGenerator{}, nil, conversation.NewLog(nil), 3)
	svc.UseArchive(&fakeArchive{err: errors.New("connection refused")}, 10)

	_, err := svc.History(context.Background(), "gone")
	assert.Equal(t, utils.KindUpstream, utils.KindOf(err))
}

func TestHistory_EmptyArchiveIsEmptyList(t *testing.T) {
	svc := NewChatService(&fakeGenerator{}, nil, conversation.NewLog(nil), 3)
	svc.UseArchive(&fakeArchive{}, 10)

	entries, err := svc.History(context.Background(), "new")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
