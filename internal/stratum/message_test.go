package stratum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAuthorize(t *testing.T) {
	e := Classify([]byte(`{"id":1,"method":"mining.authorize","params":["w1.rig","x"]}`))
	assert.Equal(t, ClientAuthorize, e.Kind)
	assert.Equal(t, "w1.rig", e.Username)
}

func TestClassifySubmit(t *testing.T) {
	e := Classify([]byte(`{"id":2,"method":"mining.submit","params":["w1.rig","job42","00","0","0"]}`))
	assert.Equal(t, ClientSubmit, e.Kind)
	assert.Equal(t, "job42", e.JobID)
}

func TestClassifyNotify(t *testing.T) {
	e := Classify([]byte(`{"id":null,"method":"mining.notify","params":["job42","prevhash"]}`))
	assert.Equal(t, PoolNotify, e.Kind)
	assert.Equal(t, "job42", e.JobID)
}

func TestClassifySetDifficulty(t *testing.T) {
	e := Classify([]byte(`{"id":null,"method":"mining.set_difficulty","params":[1024]}`))
	assert.Equal(t, PoolSetDifficulty, e.Kind)
	assert.Equal(t, 1024.0, e.Difficulty)
}

func TestClassifyAcceptedReply(t *testing.T) {
	e := Classify([]byte(`{"id":2,"result":true,"error":null}`))
	assert.Equal(t, PoolReply, e.Kind)
	assert.True(t, e.ReplyOK)
	assert.False(t, e.ReplyErrorPresent)
}

func TestClassifyRejectedReplyWithError(t *testing.T) {
	e := Classify([]byte(`{"id":2,"result":false,"error":[-1,"low diff",null]}`))
	assert.Equal(t, PoolReply, e.Kind)
	assert.False(t, e.ReplyOK)
	assert.True(t, e.ReplyErrorPresent)
}

func TestClassifyMalformedJSONIsIgnored(t *testing.T) {
	e := Classify([]byte(`not json at all`))
	assert.Equal(t, Ignore, e.Kind)
	assert.True(t, e.Malformed)
}

func TestClassifyUnrecognizedMethodIsIgnored(t *testing.T) {
	e := Classify([]byte(`{"id":1,"method":"mining.subscribe","params":[]}`))
	assert.Equal(t, Ignore, e.Kind)
	assert.False(t, e.Malformed)
}

func TestClassifyReplyWithoutIDIsIgnored(t *testing.T) {
	e := Classify([]byte(`{"result":true,"error":null}`))
	assert.Equal(t, Ignore, e.Kind)
}
