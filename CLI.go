package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/manningwu07/seq2seq/store"
	"github.com/manningwu07/seq2seq/utils"
)

// Replier is the inference boundary the chat front ends talk to.
type Replier interface {
	Reply(text string) string
}

// ChatCLI reads one question per line until EOF or "exit". When history is
// set, both sides of the conversation are stored.
func ChatCLI(bot Replier, history *store.History, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "seq2seq chat. Type 'exit' to quit.")
	for {
		fmt.Fprint(out, "You: ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "exit" || (err != nil && input == "") {
			break
		}
		if input == "" {
			continue
		}
		reply := bot.Reply(input)
		fmt.Fprintln(out, "Bot:", reply)
		logExchange(history, input, reply)
		if err != nil {
			break
		}
	}
}

func logExchange(history *store.History, question, reply string) {
	if history == nil {
		return
	}
	ctx := context.Background()
	if err := history.AddMessage(ctx, "user", question); err != nil {
		utils.Warnf("history: %v", err)
		return
	}
	if err := history.AddMessage(ctx, "bot", reply); err != nil {
		utils.Warnf("history: %v", err)
	}
}
