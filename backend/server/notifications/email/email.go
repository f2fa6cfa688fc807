package email

import (
	"fmt"
	"net/smtp"
)

// smtpServer is a global variable that stores the address of the SMTP server which is used to send emails.
var smtpServer string

// auth is a global variable that holds the authentication data needed to connect to the SMTP server.
// It is initialized by the smtp.PlainAuth function, which takes the username and password of the email sender.
var auth smtp.Auth

// fromEmail is a global variable that stores the email address of the sender. This is used as the "From" address in the emails that are sent.
var fromEmail string

// InitEmailService initializes the email service by establishing an SMTP
// connection to the configured mail server.
//
// It accepts two arguments:
// - sender: the email address used as the "From" address in outgoing mail.
// - password: the password of the sender's email account.
//
// The function dials the SMTP server once to verify the configuration and
// returns false with an error when the server is unreachable.
func InitEmailService(sender, password string) (bool, error) {
	smtpServer = "smtp.gmail.com:587"
	fromEmail = sender

	auth = smtp.PlainAuth(
		"",
		sender,
		password,
		"smtp.gmail.com",
	)

	c, err := smtp.Dial(smtpServer)
	if err != nil {
		return false, fmt.Errorf("cannot connect to the SMTP server: %v", err)
	}

	err = c.Close()
	if err != nil {
		return false, fmt.Errorf("cannot close the SMTP connection: %v", err)
	}

	return true, nil
}

// SendGoalCompleted emails one contributor that a goal they participate in
// has reached 100% completion. Delivery is best effort; the caller decides
// whether a failure is worth retrying.
func SendGoalCompleted(to, goalTitle string) error {
	headers := make(map[string]string)
	headers["From"] = fromEmail
	headers["To"] = to
	headers["Subject"] = "Goal completed: " + goalTitle
	headers["MIME-version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=\"UTF-8\""

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}

	body := `
	<html>
		<head>
			<style>
				body {
					font-family: sans-serif;
					margin: 0;
					padding: 0;
				}
				.container {
					max-width: 600px;
					margin: 0 auto;
					padding: 10px;
					border-radius: 4px;
				}
				p {
					line-height: 1.6;
				}
			</style>
		</head>
		<body>
			<div class="container">
				<h1>Congratulations!</h1>
				<p>The goal <strong>` + goalTitle + `</strong> just hit 100%.</p>
				<p>Open GoalMate to see the final progress breakdown and celebrate with your group.</p>
			</div>
		</body>
	</html>
	`
	message += "\r\n" + body

	err := smtp.SendMail(
		smtpServer,
		auth,
		fromEmail,
		[]string{to},
		[]byte(message),
	)

	if err != nil {
		return fmt.Errorf("failed to send email: %v", err)
	}

	return nil
}
