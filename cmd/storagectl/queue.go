/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/suparena/cloudstore/datastore"
)

func queueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Send and receive queue messages",
	}
	cmd.PersistentFlags().String("queue", "", "queue name (default from config)")

	cmd.AddCommand(queueSendCmd(a))
	cmd.AddCommand(queueReceiveCmd(a))

	return cmd
}

func queueName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("queue")
	return name
}

func connectQueue(cmd *cobra.Command, a *app) (datastore.Queue, error) {
	m, err := a.queueManager(queueName(cmd))
	if err != nil {
		return nil, err
	}
	return m.Connect(cmd.Context())
}

func queueSendCmd(a *app) *cobra.Command {
	var (
		delay time.Duration
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := connectQueue(cmd, a)
			if err != nil {
				return err
			}
			msg, err := q.Enqueue(cmd.Context(), args[0], datastore.WithVisibilityDelay(delay), datastore.WithTimeToLive(ttl))
			if err != nil {
				return err
			}
			return a.print(messageView(msg))
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "hide the message for this long")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the message after this long (0 keeps the service default)")
	return cmd
}

func queueReceiveCmd(a *app) *cobra.Command {
	var (
		maxMessages int32
		visibility  time.Duration
		remove      bool
	)
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := connectQueue(cmd, a)
			if err != nil {
				return err
			}
			msgs, err := q.Dequeue(cmd.Context(), maxMessages, visibility)
			if err != nil {
				return err
			}

			views := make([]map[string]any, 0, len(msgs))
			for _, msg := range msgs {
				if remove {
					if err := q.DeleteMessage(cmd.Context(), msg.ID, msg.PopReceipt); err != nil {
						return err
					}
				}
				views = append(views, messageView(msg))
			}
			return a.print(map[string]any{"messages": views})
		},
	}
	cmd.Flags().Int32Var(&maxMessages, "max", 1, "maximum number of messages")
	cmd.Flags().DurationVar(&visibility, "visibility", 30*time.Second, "hide received messages for this long")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the messages after receiving them")
	return cmd
}

func messageView(m datastore.Message) map[string]any {
	view := map[string]any{
		"id":           m.ID,
		"text":         m.Text,
		"dequeueCount": m.DequeueCount,
	}
	if !m.InsertedAt.IsZero() {
		view["insertedAt"] = m.InsertedAt.Format(time.RFC3339)
	}
	return view
}
