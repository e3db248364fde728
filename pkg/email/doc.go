// Package email sends transactional messages through Postmark, or writes them
// to disk with DevSender when no Postmark tokens are configured.
//
//	sender, err := email.New(cfg)
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "seller@example.com",
//	    Subject:  "Your subscription was renewed",
//	    BodyHTML: html,
//	    Tag:      "renewal-succeeded",
//	})
//
// Parameter and configuration failures wrap ErrInvalidParams and ErrInvalidConfig;
// delivery failures wrap ErrFailedToSendEmail.
package email
