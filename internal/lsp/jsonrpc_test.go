package lsp

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramingMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	msg1 := []byte(`{"jsonrpc":"2.0","method":"one"}`)
	msg2 := []byte(`{"jsonrpc":"2.0","method":"two"}`)
	require.NoError(t, writeMessage(&buf, msg1))
	require.NoError(t, writeMessage(&buf, msg2))

	reader := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	got1, err := readMessage(reader)
	require.NoError(t, err)
	got2, err := readMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, msg1, got1)
	assert.Equal(t, msg2, got2)
}

func TestReadMessageToleratesExtraHeaders(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":null}`
	raw := "\r\ncontent-length: 38\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n" + body
	got, err := readMessage(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestReadMessageRejectsBadLength(t *testing.T) {
	for _, header := range []string{"Content-Length: x", "Content-Length: -4", "Content-Length: 999999999999"} {
		_, err := readMessage(bufio.NewReader(strings.NewReader(header + "\r\n\r\n{}")))
		assert.Error(t, err, header)
	}
}

func TestReadMessageTruncatedBody(t *testing.T) {
	_, err := readMessage(bufio.NewReader(strings.NewReader("Content-Length: 10\r\n\r\n{}")))
	assert.Error(t, err)
}

func TestMessageClassification(t *testing.T) {
	resp := message{ID: []byte("1")}
	req := message{ID: []byte("7"), Method: "workspace/configuration"}
	note := message{Method: "textDocument/publishDiagnostics"}
	assert.True(t, resp.isResponse())
	assert.False(t, resp.isServerRequest())
	assert.True(t, req.isServerRequest())
	assert.False(t, req.isResponse())
	assert.False(t, note.isResponse())
	assert.False(t, note.isServerRequest())
}
